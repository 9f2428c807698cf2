package ledger

import (
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/domain"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/repository"
)

// Plan collects the stock deltas of a single order mutation. The item snapshots it
// was built from are used to reject an infeasible plan before anything is written;
// the store re-checks every delta at commit time.
type Plan struct {
	items  map[string]domain.Item
	deltas map[string]int
}

func NewPlan() *Plan {
	return &Plan{
		items:  make(map[string]domain.Item),
		deltas: make(map[string]int),
	}
}

// Reserve takes quantity units of item out of stock.
func (p *Plan) Reserve(item *domain.Item, quantity int) {
	p.Add(item, -quantity)
}

// Release puts quantity units of item back into stock.
func (p *Plan) Release(item *domain.Item, quantity int) {
	p.Add(item, quantity)
}

func (p *Plan) Add(item *domain.Item, delta int) {
	if _, ok := p.items[item.ItemID]; !ok {
		p.items[item.ItemID] = *item
	}
	p.deltas[item.ItemID] += delta
}

// Validate checks every merged delta against its item snapshot.
func (p *Plan) Validate() error {
	for _, d := range p.Deltas() {
		item := p.items[d.ItemID]
		if item.Quantity+d.Delta < 0 {
			return &domain.StockError{
				ItemID:    item.ItemID,
				ItemName:  item.Name,
				Requested: -d.Delta,
				Available: item.Quantity,
			}
		}
	}
	return nil
}

// Deltas returns the non-zero deltas ordered by item id.
func (p *Plan) Deltas() []repository.StockDelta {
	raw := make([]repository.StockDelta, 0, len(p.deltas))
	for id, delta := range p.deltas {
		raw = append(raw, repository.StockDelta{ItemID: id, Delta: delta})
	}
	return repository.MergeDeltas(raw)
}

func (p *Plan) Empty() bool {
	return len(p.Deltas()) == 0
}
