package lineitem

import (
	"github.com/Optum/tally/pkg/errors"
)

// columnIndexes holds the per-file column layout. The detailed billing
// format varies along two axes: a per-row resource id and tag block, and a
// blended/unblended cost column pair for consolidated payers.
type columnIndexes struct {
	account     int
	product     int
	usageType   int
	operation   int
	zone        int
	reserved    int
	description int
	start       int
	end         int
	quantity    int
	rate        int
	cost        int
	resource    int
	tagStart    int
}

// InitIndexes detects the column layout from the file header. The header
// drives everything: hasResourceTags reflects the filename variant, and
// useBlendedCost selects which cost column feeds the series when the file
// carries both.
func (p *Processor) InitIndexes(header []string, hasResourceTags bool, useBlendedCost bool) error {
	byName := make(map[string]int, len(header))
	for i, name := range header {
		byName[name] = i
	}

	find := func(name string) (int, error) {
		i, ok := byName[name]
		if !ok {
			return 0, errors.NewValidation("billing header", errors.NewNotFound("column", name))
		}
		return i, nil
	}

	var err error
	idx := columnIndexes{resource: -1, tagStart: -1}
	if idx.account, err = find("LinkedAccountId"); err != nil {
		return err
	}
	if idx.product, err = find("ProductName"); err != nil {
		return err
	}
	if idx.usageType, err = find("UsageType"); err != nil {
		return err
	}
	if idx.operation, err = find("Operation"); err != nil {
		return err
	}
	if idx.zone, err = find("AvailabilityZone"); err != nil {
		return err
	}
	if idx.reserved, err = find("ReservedInstance"); err != nil {
		return err
	}
	if idx.description, err = find("ItemDescription"); err != nil {
		return err
	}
	if idx.start, err = find("UsageStartDate"); err != nil {
		return err
	}
	if idx.end, err = find("UsageEndDate"); err != nil {
		return err
	}
	if idx.quantity, err = find("UsageQuantity"); err != nil {
		return err
	}

	// consolidated payer files carry both blended and unblended columns
	if _, hasBlended := byName["UnBlendedCost"]; hasBlended {
		if useBlendedCost {
			if idx.rate, err = find("BlendedRate"); err != nil {
				return err
			}
			if idx.cost, err = find("BlendedCost"); err != nil {
				return err
			}
		} else {
			if idx.rate, err = find("UnBlendedRate"); err != nil {
				return err
			}
			if idx.cost, err = find("UnBlendedCost"); err != nil {
				return err
			}
		}
	} else {
		if idx.rate, err = find("Rate"); err != nil {
			return err
		}
		if idx.cost, err = find("Cost"); err != nil {
			return err
		}
	}

	if hasResourceTags {
		if idx.resource, err = find("ResourceId"); err != nil {
			return err
		}
		idx.tagStart = idx.resource + 1
	}

	p.idx = idx
	return nil
}

// UserTagStartIndex returns the column where caller-defined tag columns
// begin, or -1 when the file carries no resource block.
func (p *Processor) UserTagStartIndex() int {
	return p.idx.tagStart
}
