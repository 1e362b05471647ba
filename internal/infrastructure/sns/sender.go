package sns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/go-redemption-api/internal/config"
	"github.com/go-redemption-api/internal/domain"
)

// Publisher is the slice of the SNS client the notifier uses.
type Publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Notifier delivers messages as transactional SMS. SMS cannot carry an image, so the
// image URL is appended to the text.
type Notifier struct {
	client Publisher
}

func NewNotifier(cfg *config.Config) (*Notifier, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.SNSRegion)}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, err
	}
	var clientOpts []func(*sns.Options)
	if cfg.AWSEndpointURL != "" {
		clientOpts = append(clientOpts, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		})
	}
	return &Notifier{client: sns.NewFromConfig(awsCfg, clientOpts...)}, nil
}

func NewNotifierWithClient(client Publisher) *Notifier {
	return &Notifier{client: client}
}

func (n *Notifier) Send(ctx context.Context, msg domain.OutboundMessage) error {
	body := msg.Text
	if msg.ImageURL != "" {
		body += "\n" + msg.ImageURL
	}
	_, err := n.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(msg.Phone),
		Message:     aws.String(body),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
