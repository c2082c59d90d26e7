package product

import (
	"strings"

	"github.com/Optum/tally/pkg/errors"
	"github.com/Optum/tally/pkg/tagset"
)

// Canonical product names. The normalizer reclassifies several raw billing
// products onto these based on usage-type prefixes.
const (
	Ec2         = "ec2"
	Ec2Instance = "ec2_instance"
	Ebs         = "ebs"
	Eip         = "eip"
	CloudWatch  = "cloudwatch"
	Rds         = "rds"
	Redshift    = "redshift"
	S3          = "s3"
	CloudHsm    = "cloudhsm"
	Monitor     = "monitor"
)

// rawNameTable maps billing-file product names onto canonical names
var rawNameTable = map[string]string{
	"Amazon Elastic Compute Cloud":       Ec2,
	"Amazon Simple Storage Service":      S3,
	"Amazon RDS Service":                 Rds,
	"Amazon Relational Database Service": Rds,
	"Amazon Redshift":                    Redshift,
	"AmazonCloudWatch":                   CloudWatch,
	"Amazon CloudWatch":                  CloudWatch,
	"AWS CloudHSM":                       CloudHsm,
}

// Service interns products and maps raw billing names onto canonical ones
type Service struct {
	registry *tagset.Registry
}

// NewService creates a new instance of the Service
func NewService(registry *tagset.Registry) *Service {
	return &Service{registry: registry}
}

// ByRawName returns the canonical product for a raw billing product name.
// Unrecognized names are canonicalized mechanically so new products flow
// through without a code change.
func (s *Service) ByRawName(raw string) *tagset.Product {
	if name, ok := rawNameTable[raw]; ok {
		return s.registry.Product(name)
	}
	return s.registry.Product(canonicalize(raw))
}

// ByCanonicalName returns the product for a canonical name
func (s *Service) ByCanonicalName(name string) (*tagset.Product, error) {
	if name == "" {
		return nil, errors.NewNotFound("product", name)
	}
	return s.registry.Product(name), nil
}

// InstanceVariant returns the instance-level product for a base compute
// product, or the product itself when no variant exists.
func (s *Service) InstanceVariant(p *tagset.Product) *tagset.Product {
	if p.Name == Ec2 {
		return s.registry.Product(Ec2Instance)
	}
	return p
}

func canonicalize(raw string) string {
	name := strings.TrimSpace(raw)
	name = strings.TrimPrefix(name, "Amazon ")
	name = strings.TrimPrefix(name, "AWS ")
	name = strings.ToLower(name)
	return strings.ReplaceAll(name, " ", "_")
}
