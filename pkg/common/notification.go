package common

import (
	"github.com/aws/aws-sdk-go/service/sns"
)

// Notificationer interface requires a method to publish an operator-facing
// message to an AWS SNS Topic
type Notificationer interface {
	PublishSubjectMessage(topicArn *string, subject *string, message *string) (*string, error)
}

// SNS implements the Notification interface with AWS SNS SDK
type SNS struct {
	Client *sns.SNS
}

// PublishSubjectMessage pushes the provided message with a subject line,
// used for operator-facing alerts
func (notif *SNS) PublishSubjectMessage(topicArn *string, subject *string,
	message *string) (*string, error) {
	publishOutput, err := notif.Client.Publish(&sns.PublishInput{
		TopicArn: topicArn,
		Subject:  subject,
		Message:  message,
	})
	if err != nil {
		return nil, err
	}
	return publishOutput.MessageId, err
}
