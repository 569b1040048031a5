// Package boxagg turns per-worker box annotations into object instances.
//
// An Aggregator runs three stages over an annotation export:
//
//   - label filter: drops samples marked "empty" or "Bad_quality" and strips
//     "mistake" boxes
//   - size filter: drops boxes not larger than a fraction of the image
//   - consistency: clusters box centres per image with mean shift and keeps
//     the most populated clusters as instances
//
// Rejected samples and boxes are collected into Logs, which are written to
// the wrong-cases directory only once every stage has succeeded. Images are
// read through an imagestore.DimensionLoader on a bounded worker pool; the
// output order follows the order of the export.
package boxagg
