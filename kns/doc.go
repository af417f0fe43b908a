/*
Package kns provides the core types shared across the Kuan Lab neuron
segmentation merge pipeline: 3d points and axis-aligned boxes for block
geometry, serialization with optional compression and checksums for stored
voxel data, and leveled logging.

The merge pipeline reconciles instance segmentations computed independently
over spatially overlapping 3d blocks into one globally consistent labeling.
Higher-level packages (volume, merge, pipeline) build on the primitives here.
*/
package kns
