package cache

import "github.com/posekit/posekit/pipeline"

func init() {
	pipeline.NewRegionCacheFunc = func(cfg pipeline.CacheConfig) pipeline.RegionCache {
		return New(cfg)
	}
}
