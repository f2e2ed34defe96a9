package smoothing

import "github.com/posekit/posekit/pipeline"

func init() {
	pipeline.NewSmootherFunc = func(cfg pipeline.SmoothingConfig) pipeline.TemporalSmoother {
		return New(cfg)
	}
}
