package llm

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/raphaelgruber/aiact-go/internal/config"
	"github.com/tmc/langchaingo/llms/bedrock"
)

// newBedrock builds a Bedrock model from the default AWS credential chain.
func newBedrock(ctx context.Context, cfg config.Config) (*bedrock.LLM, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	model, err := bedrock.New(
		bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
		bedrock.WithModel(cfg.LLMModel),
	)
	if err != nil {
		return nil, fmt.Errorf("create bedrock model: %w", err)
	}
	return model, nil
}
