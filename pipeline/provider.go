package pipeline

import "context"

// The segmentation and training steps run outside this pipeline, typically as
// GPU jobs under an external scheduler.  The pipeline interacts with them
// only through a narrow file contract: paths in, paths out, completion
// recorded in the block metadata index.  These interfaces exist so batch
// planning and status reporting can be tested against fakes; the pipeline
// never ships an implementation.

// SegmentationRequest names the files for segmenting one block.
type SegmentationRequest struct {
	// Index is the block to segment.
	Index int

	// ImagePath is the raw EM image data for the block's bounds.
	ImagePath string

	// OutputPath is where the provider must write the block's label data.
	OutputPath string

	// ModelPath is the trained model checkpoint to segment with.
	ModelPath string
}

// SegmentationProvider produces per-block label volumes from raw image data.
// A provider must write its output atomically and only then report success;
// the pipeline marks the block done in the metadata index afterwards.
type SegmentationProvider interface {
	Segment(ctx context.Context, req SegmentationRequest) error
}

// TrainingRequest names the files for one training run.
type TrainingRequest struct {
	// GroundTruthPath holds the proofread training volume.
	GroundTruthPath string

	// ConfigPath holds the provider-specific training configuration.
	ConfigPath string

	// ModelPath is where the provider must write the resulting checkpoint.
	ModelPath string
}

// TrainingProvider trains a segmentation model from ground truth.
type TrainingProvider interface {
	Train(ctx context.Context, req TrainingRequest) error
}
