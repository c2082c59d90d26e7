package config

import (
	"log"
	"reflect"
	"runtime"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sts"

	"github.com/Optum/tally/pkg/common"
)

// AWSConfigurationError is returned when an AWS service cannot be properly configured.
type AWSConfigurationError error

// ConfigurationBuildBuilder Interface for adding the build function
type ConfigurationBuildBuilder interface {
	Build() error
}

// ConfigurationServiceBuilder Interface for adding services to the config
type ConfigurationServiceBuilder interface {
	ConfigurationBuildBuilder
	WithService(svc interface{}) *ConfigurationBuilder
}

// createrFunc internal functions for handling the creation of the services
type createrFunc func() error

// ServiceBuilder is the default implementation of the `ServiceBuild`
type ServiceBuilder struct {
	ConfigurationBuilder
	handlers []createrFunc
}

// WithStorager tells the builder to add the S3-backed Storager service
func (bldr *ServiceBuilder) WithStorager() *ServiceBuilder {
	bldr.handlers = append(bldr.handlers, func() error {
		awsSession, err := bldr.Session()
		if err != nil {
			return err
		}

		bldr.WithService(&common.S3{
			Client:  s3.New(awsSession),
			Manager: s3manager.NewDownloader(awsSession),
		})

		return nil
	})
	return bldr
}

// WithNotificationer tells the builder to add the SNS-backed alert service
func (bldr *ServiceBuilder) WithNotificationer() *ServiceBuilder {
	bldr.handlers = append(bldr.handlers, func() error {
		awsSession, err := bldr.Session()
		if err != nil {
			return err
		}

		bldr.WithService(&common.SNS{
			Client: sns.New(awsSession),
		})

		return nil
	})
	return bldr
}

// WithTokenService tells the builder to add the STS token service used for
// cross-account billing bucket access
func (bldr *ServiceBuilder) WithTokenService() *ServiceBuilder {
	bldr.handlers = append(bldr.handlers, func() error {
		awsSession, err := bldr.Session()
		if err != nil {
			return err
		}

		stsClient := sts.New(awsSession)
		tokenService := &common.STS{
			Client: stsClient,
		}
		bldr.WithService(tokenService)

		return nil
	})
	return bldr
}

// Build creates and returns a structue with AWS services
func (bldr *ServiceBuilder) Build() (*ServiceBuilder, error) {
	err := bldr.ConfigurationBuilder.Build()
	if err != nil {
		// We failed to build the configuration, so honestly there is no
		// point in continuating...
		return bldr, AWSConfigurationError(err)
	}

	// Create session is done first, and explicitly, because everything else
	// uses it
	err = bldr.createSession()

	if err != nil {
		log.Printf("Could not create session: %s", err.Error())
		return bldr, AWSConfigurationError(err)
	}

	for _, f := range bldr.handlers {
		err := f()
		if err != nil {
			log.Printf("Error while trying to execute handler: %s", runtime.FuncForPC(reflect.ValueOf(f).Pointer()).Name())
			return bldr, AWSConfigurationError(err)
		}
	}

	// make certain build is called before returning.
	return bldr, nil
}

func (bldr *ServiceBuilder) createSession() error {
	var err error
	region := common.GetEnv("AWS_CURRENT_REGION", "")
	var awsSession *session.Session
	if region != "" {
		log.Printf("Using AWS region \"%s\" to create session...", region)
		awsSession, err = session.NewSession(
			&aws.Config{
				Region: aws.String(region),
			},
		)
		if err != nil {
			return err
		}
	} else {
		log.Println("Creating AWS session using defaults...")
		awsSession, err = session.NewSession()
		if err != nil {
			return err
		}
	}

	bldr.WithService(awsSession)

	return nil
}

// Session returns the AWS session registered during Build
func (bldr *ServiceBuilder) Session() (*session.Session, error) {
	var awsSession *session.Session
	err := bldr.GetService(&awsSession)
	return awsSession, err
}
