package invoke

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/rs/zerolog/log"
)

// LambdaAPI is the subset of the Lambda client used here.
type LambdaAPI interface {
	Invoke(ctx context.Context, in *lambdasvc.InvokeInput, opts ...func(*lambdasvc.Options)) (*lambdasvc.InvokeOutput, error)
	GetFunctionConfiguration(ctx context.Context, in *lambdasvc.GetFunctionConfigurationInput, opts ...func(*lambdasvc.Options)) (*lambdasvc.GetFunctionConfigurationOutput, error)
}

// Lambda invokes AWS Lambda functions with InvocationType=Event.
type Lambda struct {
	client LambdaAPI
}

// NewLambda wraps a Lambda client.
func NewLambda(client LambdaAPI) *Lambda {
	return &Lambda{client: client}
}

// InvokeAsync implements Invoker.
func (l *Lambda) InvokeAsync(ctx context.Context, target string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", target, err)
	}

	log.Debug().Str("function", target).Int("payloadSize", len(data)).Msg("Invoking Lambda asynchronously")

	_, err = l.client.Invoke(ctx, &lambdasvc.InvokeInput{
		FunctionName:   aws.String(target),
		InvocationType: lambdatypes.InvocationTypeEvent,
		Payload:        data,
	})
	if err != nil {
		return fmt.Errorf("invoke lambda %s: %w", target, err)
	}
	return nil
}

// MemorySize implements Invoker from the function configuration.
func (l *Lambda) MemorySize(ctx context.Context, target string) (int64, error) {
	out, err := l.client.GetFunctionConfiguration(ctx, &lambdasvc.GetFunctionConfigurationInput{
		FunctionName: aws.String(target),
	})
	if err != nil {
		return 0, fmt.Errorf("get configuration of %s: %w", target, err)
	}
	if out.MemorySize == nil {
		return 0, fmt.Errorf("function %s reports no memory size", target)
	}
	return int64(*out.MemorySize), nil
}
