// Package nwb implements the container hierarchy that owns tables: a File
// document, a write-once MetadataRoot, processing modules, time series and
// devices.
//
// Every container implements [dyntable.Node] so that table regions can walk
// up to the File, which implements [dyntable.Root] by delegating to its
// metadata root.
package nwb
