package reservation

import (
	"sort"
	"time"

	"github.com/Optum/tally/pkg/account/accountiface"
	"github.com/Optum/tally/pkg/errors"
	"github.com/Optum/tally/pkg/tagset"
	"github.com/Optum/tally/pkg/timeseries"
)

// priceKey identifies one price table
type priceKey struct {
	region    *tagset.Region
	usageType *tagset.UsageType
}

// Service holds reservation ownership windows and price tables, and
// redistributes reservation usage and cost across the accounts sharing
// each reservation.
type Service struct {
	registry *tagset.Registry
	accounts accountiface.Servicer
	windows  map[*tagset.TagGroup][]Window
	prices   map[priceKey]*Price
}

// NewServiceInput Input for creating a new Service
type NewServiceInput struct {
	Registry *tagset.Registry
	Accounts accountiface.Servicer
}

// NewService creates a new instance of the Service
func NewService(input NewServiceInput) *Service {
	return &Service{
		registry: input.Registry,
		accounts: input.Accounts,
		windows:  make(map[*tagset.TagGroup][]Window),
		prices:   make(map[priceKey]*Price),
	}
}

// SetPrice installs the price table for a (region, usage type) key
func (s *Service) SetPrice(region *tagset.Region, usageType *tagset.UsageType, price *Price) {
	s.prices[priceKey{region: region, usageType: usageType}] = price
}

// AddWindow records a purchased-capacity interval owned by the given
// reservation key. The key must carry a reservation operation and a zone.
func (s *Service) AddWindow(owner *tagset.TagGroup, w Window) error {
	if !owner.Operation.IsReserved() {
		return errors.NewValidation("reservation", errors.NewInternalServer("owner key must carry a reservation operation", nil))
	}
	if owner.Zone == nil {
		return errors.NewValidation("reservation", errors.NewInternalServer("owner key must carry a zone", nil))
	}
	s.windows[owner] = append(s.windows[owner], w)
	return nil
}

// CapacityAt returns the reserved unit count for the key at time t
func (s *Service) CapacityAt(owner *tagset.TagGroup, t time.Time) float64 {
	millis := t.UnixMilli()
	capacity := 0.0
	for _, w := range s.windows[owner] {
		if w.ActiveAt(millis) {
			capacity += float64(w.Count)
		}
	}
	return capacity
}

// hourlyRate returns the contracted rate for the key, degrading to the
// cached on-demand rate when no price table exists at all.
func (s *Service) hourlyRate(region *tagset.Region, usageType *tagset.UsageType, t int64, volume float64, rates *RateCache) float64 {
	if p, ok := s.prices[priceKey{region: region, usageType: usageType}]; ok {
		return p.HourlyAt(t, volume)
	}
	if rate, ok := rates.Get(tagset.OperationOndemandInstances, region, usageType); ok {
		return rate
	}
	return 0
}

// ContractRate looks up the tier-one contracted hourly rate for the key at
// time t. It reports false when no price table was configured for the key.
func (s *Service) ContractRate(region *tagset.Region, usageType *tagset.UsageType, t int64) (float64, bool) {
	p, ok := s.prices[priceKey{region: region, usageType: usageType}]
	if !ok {
		return 0, false
	}
	return p.HourlyAt(t, 1), true
}

func (s *Service) upfrontPrice(region *tagset.Region, usageType *tagset.UsageType, t int64, volume float64) float64 {
	if p, ok := s.prices[priceKey{region: region, usageType: usageType}]; ok {
		return p.UpfrontAt(t, volume)
	}
	return 0
}

// family tracks the reconciliation state of one owning key for one hour
type family struct {
	owner    *tagset.TagGroup
	capacity float64
	rate     float64

	// consumed sums the owner's own reserved usage and every borrowed row
	// attributed to this key's capacity
	consumedUsage float64
	consumedCost  float64
	ownerUsage    float64
	ownerCost     float64

	borrowedRows []*tagset.TagGroup
}

func (f *family) attach(tg *tagset.TagGroup, usage float64, cost float64) {
	f.consumedUsage += usage
	f.consumedCost += cost
	for _, existing := range f.borrowedRows {
		if existing == tg {
			return
		}
	}
	f.borrowedRows = append(f.borrowedRows, tg)
}

// Apply redistributes reservation usage/cost for one month of hourly data.
// The two series are mutated in place: owner rows are capped at capacity,
// borrower rows become Borrowed/Lent pairs, overflow is repriced to
// on-demand, idle on-demand usage is absorbed into spare capacity, and
// Unused and UpfrontAmortized rows are appended per owning key.
func (s *Service) Apply(usage, cost *timeseries.ReadWriteData, monthStart time.Time, rates *RateCache) error {
	owners := s.ownerKeys()

	for hour := 0; hour < usage.NumHours(); hour++ {
		t := monthStart.Add(time.Duration(hour) * time.Hour).UnixMilli()

		families := s.processOwners(usage, cost, hour, t, owners, rates)
		s.processBorrowers(usage, cost, hour, t, families, rates)
		s.reconcile(usage, cost, hour, families, rates)
		s.amortize(cost, hour, t, owners)
	}
	return nil
}

// ownerKeys returns every reservation-owning key in canonical order
func (s *Service) ownerKeys() []*tagset.TagGroup {
	keys := make([]*tagset.TagGroup, 0, len(s.windows))
	for tg := range s.windows {
		keys = append(keys, tg)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })
	return keys
}

// processOwners caps each owner row at capacity and reprices it at the
// contracted rate. Usage above capacity on an owner's row belongs to a
// borrowing account and moves into a Borrowed row there.
func (s *Service) processOwners(usage, cost *timeseries.ReadWriteData, hour int, t int64,
	owners []*tagset.TagGroup, rates *RateCache) []*family {

	topology := s.accounts.ReservationOwnerToBorrowers()
	families := make([]*family, 0, len(owners))

	for _, otg := range owners {
		capacity := s.capacityAtMillis(otg, t)
		if capacity == 0 && usage.Get(hour, otg) == 0 {
			continue
		}
		rate := s.hourlyRate(otg.Region, otg.UsageType, t, capacity, rates)
		fam := &family{owner: otg, capacity: capacity, rate: rate}

		u := usage.Get(hour, otg)
		if u > capacity {
			excess := u - capacity
			borrowers := topology[otg.Account]
			if len(borrowers) > 0 {
				// the overflow was consumed by the sharing account; value it
				// at that account's contracted rate with its zone remapped
				// onto the owner's
				b := borrowers[0]
				zone := s.accounts.MappedZone(b, otg.Account, otg.Zone)
				btg := s.registry.GetTagGroup(b, otg.Region, zone, otg.Product,
					tagset.BorrowedOperation(otg.Operation.Utilization()), otg.UsageType, otg.ResourceGroup)
				usage.Add(hour, btg, excess)
				cost.Add(hour, btg, excess*rate)
				fam.attach(btg, excess, excess*rate)
				u = capacity
			}
		}

		if u > 0 {
			usage.Put(hour, otg, u)
			cost.Put(hour, otg, u*rate)
		} else {
			usage.Remove(hour, otg)
			cost.Remove(hour, otg)
		}
		fam.ownerUsage = u
		fam.ownerCost = u * rate
		fam.consumedUsage += u
		fam.consumedCost += u * rate

		families = append(families, fam)
	}
	return families
}

// processBorrowers reclassifies reservation-tagged rows on accounts that
// own no matching reservation. The usage consumed someone else's capacity,
// so it becomes a Borrowed row valued at the lending account's rate.
func (s *Service) processBorrowers(usage, cost *timeseries.ReadWriteData, hour int, t int64,
	families []*family, rates *RateCache) {

	topology := s.accounts.ReservationOwnerToBorrowers()

	for _, rtg := range sortedKeys(usage.Hour(hour)) {
		if !rtg.Operation.IsReserved() || s.ownsMatching(rtg, t) {
			continue
		}
		u := usage.Get(hour, rtg)
		if u == 0 {
			continue
		}

		fam := findLender(families, topology, rtg)
		if fam == nil {
			// nobody shares capacity with this account; keep the row but
			// reprice it at the best known rate
			rate := s.hourlyRate(rtg.Region, rtg.UsageType, t, u, rates)
			cost.Put(hour, rtg, u*rate)
			continue
		}

		zone := s.accounts.MappedZone(rtg.Account, fam.owner.Account, rtg.Zone)
		btg := s.registry.GetTagGroup(rtg.Account, rtg.Region, zone, rtg.Product,
			tagset.BorrowedOperation(rtg.Operation.Utilization()), rtg.UsageType, rtg.ResourceGroup)

		usage.Remove(hour, rtg)
		cost.Remove(hour, rtg)
		usage.Add(hour, btg, u)
		cost.Add(hour, btg, u*fam.rate)
		fam.attach(btg, u, u*fam.rate)
	}
}

// reconcile settles each owning key: oversubscription is repriced back to
// on-demand, spare capacity absorbs on-demand usage at the contracted
// rate, and the Lent and Unused residuals are recorded.
func (s *Service) reconcile(usage, cost *timeseries.ReadWriteData, hour int, families []*family, rates *RateCache) {
	for _, fam := range families {
		unusedUsage := fam.capacity - fam.consumedUsage
		unusedCost := fam.capacity*fam.rate - fam.consumedCost

		if unusedUsage < 0 {
			s.repriceOverflow(usage, cost, hour, fam, -unusedUsage, rates)
			unusedUsage = fam.capacity - fam.consumedUsage
			unusedCost = fam.capacity*fam.rate - fam.consumedCost
		} else if unusedUsage > 0 {
			s.absorbOndemand(usage, cost, hour, fam, unusedUsage)
			unusedUsage = fam.capacity - fam.consumedUsage
			unusedCost = fam.capacity*fam.rate - fam.consumedCost
		}

		util := fam.owner.Operation.Utilization()

		lentUsage := fam.consumedUsage - fam.ownerUsage
		if lentUsage > 0 {
			ltg := s.registry.GetTagGroup(fam.owner.Account, fam.owner.Region, fam.owner.Zone,
				fam.owner.Product, tagset.LentOperation(util), fam.owner.UsageType, fam.owner.ResourceGroup)
			usage.Put(hour, ltg, lentUsage)
			cost.Put(hour, ltg, fam.consumedCost-fam.ownerCost)
		}

		if unusedUsage > 0 || unusedCost != 0 {
			utg := s.registry.GetTagGroup(fam.owner.Account, fam.owner.Region, fam.owner.Zone,
				fam.owner.Product, tagset.UnusedOperation(util), fam.owner.UsageType, fam.owner.ResourceGroup)
			if unusedUsage > 0 {
				usage.Put(hour, utg, unusedUsage)
			}
			cost.Put(hour, utg, unusedCost)
		}
	}
}

// repriceOverflow moves consumption beyond capacity out of Borrowed rows
// into On-demand rows. The overflow is valued at the on-demand rate
// observed this run, or the reservation's own rate when none was seen.
// Sources drain in declaration order until the delta is met.
func (s *Service) repriceOverflow(usage, cost *timeseries.ReadWriteData, hour int, fam *family, overflow float64, rates *RateCache) {
	odRate, ok := rates.Get(tagset.OperationOndemandInstances, fam.owner.Region, fam.owner.UsageType)
	if !ok {
		odRate = fam.rate
	}

	sources := append([]*tagset.TagGroup{}, fam.borrowedRows...)
	sort.Slice(sources, func(i, j int) bool {
		if sources[i].Operation.Seq() != sources[j].Operation.Seq() {
			return sources[i].Operation.Seq() < sources[j].Operation.Seq()
		}
		return sources[i].Compare(sources[j]) < 0
	})

	for _, src := range sources {
		if overflow <= 0 {
			break
		}
		avail := usage.Get(hour, src)
		if avail <= 0 {
			continue
		}
		delta := avail
		if delta > overflow {
			delta = overflow
		}

		dst := s.registry.GetTagGroup(src.Account, src.Region, src.Zone, src.Product,
			tagset.OperationOndemandInstances, src.UsageType, src.ResourceGroup)
		usage.Add(hour, dst, delta)
		cost.Add(hour, dst, delta*odRate)

		remaining := avail - delta
		usage.Put(hour, src, remaining)
		cost.Put(hour, src, remaining*fam.rate)

		fam.consumedUsage -= delta
		fam.consumedCost -= delta * fam.rate
		overflow -= delta
	}
}

// absorbOndemand moves on-demand usage within the sharing family into the
// reservation's spare capacity, valued at the contracted rate.
func (s *Service) absorbOndemand(usage, cost *timeseries.ReadWriteData, hour int, fam *family, spare float64) {
	members := map[*tagset.Account]struct{}{fam.owner.Account: {}}
	for _, b := range s.accounts.ReservationOwnerToBorrowers()[fam.owner.Account] {
		members[b] = struct{}{}
	}

	for _, odtg := range sortedKeys(usage.Hour(hour)) {
		if spare <= 0 {
			break
		}
		if !odtg.Operation.IsOndemand() ||
			odtg.Region != fam.owner.Region ||
			odtg.UsageType != fam.owner.UsageType {
			continue
		}
		if _, ok := members[odtg.Account]; !ok {
			continue
		}
		avail := usage.Get(hour, odtg)
		if avail <= 0 {
			continue
		}
		delta := avail
		if delta > spare {
			delta = spare
		}

		odUnit := 0.0
		if avail > 0 {
			odUnit = cost.Get(hour, odtg) / avail
		}

		zone := s.accounts.MappedZone(odtg.Account, fam.owner.Account, fam.owner.Zone)
		btg := s.registry.GetTagGroup(odtg.Account, fam.owner.Region, zone, fam.owner.Product,
			tagset.BorrowedOperation(fam.owner.Operation.Utilization()), fam.owner.UsageType, odtg.ResourceGroup)
		usage.Add(hour, btg, delta)
		cost.Add(hour, btg, delta*fam.rate)
		fam.attach(btg, delta, delta*fam.rate)

		usage.Put(hour, odtg, avail-delta)
		cost.Put(hour, odtg, (avail-delta)*odUnit)
		spare -= delta
	}
}

// amortize records the capacity-proportional share of the upfront list
// price on each owning key, independent of utilization.
func (s *Service) amortize(cost *timeseries.ReadWriteData, hour int, t int64, owners []*tagset.TagGroup) {
	for _, otg := range owners {
		amortized := 0.0
		for _, w := range s.windows[otg] {
			if !w.ActiveAt(t) || w.TermHours() == 0 {
				continue
			}
			upfront := s.upfrontPrice(otg.Region, otg.UsageType, w.Start, float64(w.Count))
			amortized += float64(w.Count) * upfront / w.TermHours()
		}
		if amortized == 0 {
			continue
		}
		atg := s.registry.GetTagGroup(otg.Account, otg.Region, otg.Zone, otg.Product,
			tagset.UpfrontAmortizedOperation(otg.Operation.Utilization()), otg.UsageType, otg.ResourceGroup)
		cost.Put(hour, atg, amortized)
	}
}

func (s *Service) capacityAtMillis(owner *tagset.TagGroup, t int64) float64 {
	capacity := 0.0
	for _, w := range s.windows[owner] {
		if w.ActiveAt(t) {
			capacity += float64(w.Count)
		}
	}
	return capacity
}

// ownsMatching reports whether the row's account owns an active reservation
// for the row's (region, usage type, utilization), under any zone.
func (s *Service) ownsMatching(rtg *tagset.TagGroup, t int64) bool {
	for otg, windows := range s.windows {
		if otg.Account != rtg.Account ||
			otg.Region != rtg.Region ||
			otg.UsageType != rtg.UsageType ||
			otg.Operation.Utilization() != rtg.Operation.Utilization() {
			continue
		}
		for _, w := range windows {
			if w.ActiveAt(t) {
				return true
			}
		}
	}
	return false
}

// findLender locates the family whose owner shares capacity with the
// borrowing row's account.
func findLender(families []*family, topology map[*tagset.Account][]*tagset.Account, rtg *tagset.TagGroup) *family {
	for _, fam := range families {
		if fam.owner.Region != rtg.Region ||
			fam.owner.UsageType != rtg.UsageType ||
			fam.owner.Operation.Utilization() != rtg.Operation.Utilization() {
			continue
		}
		for _, b := range topology[fam.owner.Account] {
			if b == rtg.Account {
				return fam
			}
		}
	}
	return nil
}

func sortedKeys(m map[*tagset.TagGroup]float64) []*tagset.TagGroup {
	keys := make([]*tagset.TagGroup, 0, len(m))
	for tg := range m {
		keys = append(keys, tg)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })
	return keys
}
