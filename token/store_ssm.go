package token

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
)

// SSMClient is the part of ssmiface.SSMAPI used by SSMStore.
type SSMClient interface {
	GetParameterWithContext(aws.Context, *ssm.GetParameterInput, ...request.Option) (*ssm.GetParameterOutput, error)
	PutParameterWithContext(aws.Context, *ssm.PutParameterInput, ...request.Option) (*ssm.PutParameterOutput, error)
	DeleteParametersWithContext(aws.Context, *ssm.DeleteParametersInput, ...request.Option) (*ssm.DeleteParametersOutput, error)
}

// SSMStore keeps tokens as SecureString parameters in AWS Systems Manager
// Parameter Store, for kiosks that must not hold credentials on local disk.
type SSMStore struct {
	client SSMClient
	path   string
}

var _ Store = (*SSMStore)(nil)

// NewSSMStore stores every key as the parameter path+key. path is usually a
// hierarchy such as "/parkdesk/kiosk-3/".
func NewSSMStore(client SSMClient, path string) *SSMStore {
	return &SSMStore{client: client, path: path}
}

// NewSSMStoreForRegion builds the SSM client from the default credential chain.
func NewSSMStoreForRegion(region, path string) (*SSMStore, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, err
	}
	return NewSSMStore(ssm.New(sess), path), nil
}

func (s *SSMStore) Get(ctx context.Context, key string) (string, error) {
	out, err := s.client.GetParameterWithContext(ctx, &ssm.GetParameterInput{
		Name:           aws.String(s.name(key)),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == ssm.ErrCodeParameterNotFound {
			return "", ErrNotFound
		}
		return "", err
	}
	if out.Parameter == nil {
		return "", ErrNotFound
	}
	return aws.StringValue(out.Parameter.Value), nil
}

func (s *SSMStore) Set(ctx context.Context, key, value string) error {
	_, err := s.client.PutParameterWithContext(ctx, &ssm.PutParameterInput{
		Name:      aws.String(s.name(key)),
		Value:     aws.String(value),
		Type:      aws.String(ssm.ParameterTypeSecureString),
		Overwrite: aws.Bool(true),
	})
	return err
}

// Delete removes the parameters. Missing names are reported by SSM as invalid
// parameters rather than an error, so they are ignored.
func (s *SSMStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, s.name(k))
	}
	_, err := s.client.DeleteParametersWithContext(ctx, &ssm.DeleteParametersInput{
		Names: aws.StringSlice(names),
	})
	return err
}

func (s *SSMStore) name(key string) string {
	return s.path + key
}
