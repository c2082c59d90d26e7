package tagset

// Region is a billing region. ShortName is the prefix AWS uses on usage
// types ("USW2-BoxUsage:m1.small"); Name is the canonical region code.
type Region struct {
	Name      string
	ShortName string
}

// Zone is an availability zone within a Region
type Zone struct {
	Name   string
	Region *Region
}

// The short-code table is fixed by the billing file format. US East has no
// prefix on its usage types and acts as the default region.
var regionTable = []*Region{
	{Name: "us-east-1", ShortName: "USE1"},
	{Name: "us-west-1", ShortName: "USW1"},
	{Name: "us-west-2", ShortName: "USW2"},
	{Name: "eu-west-1", ShortName: "EU"},
	{Name: "eu-central-1", ShortName: "EUC1"},
	{Name: "ap-southeast-1", ShortName: "APS1"},
	{Name: "ap-southeast-2", ShortName: "APS2"},
	{Name: "ap-northeast-1", ShortName: "APN1"},
	{Name: "sa-east-1", ShortName: "SAE1"},
	{Name: "us-gov-west-1", ShortName: "UGW1"},
}
