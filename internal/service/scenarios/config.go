package scenarios

import (
	"github.com/get2b/get2b-go/internal/domain"
	"github.com/get2b/get2b-go/internal/platform/env"
)

type Config struct {
	DeltaPolicy domain.DeltaPolicy
}

func ConfigFromEnv() (Config, error) {
	raw, err := env.OneOf("SCENARIOS_DELTA_POLICY", string(domain.DeltaReplace), string(domain.DeltaReplace), string(domain.DeltaMerge))
	if err != nil {
		return Config{}, err
	}
	policy, err := domain.ParseDeltaPolicy(raw)
	if err != nil {
		return Config{}, err
	}
	return Config{DeltaPolicy: policy}, nil
}
