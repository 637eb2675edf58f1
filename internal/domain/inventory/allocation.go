package inventory

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jhoicas/stockledger-api/internal/domain/entity"
)

// Policy criterio de orden para consumir lotes.
type Policy string

const (
	// PolicyFIFO primero el lote comprado antes (purchaseDate ascendente).
	PolicyFIFO Policy = "FIFO"
	// PolicyFEFO primero el lote que vence antes.
	PolicyFEFO Policy = "FEFO"
)

// ParsePolicy interpreta el valor de configuración; vacío o desconocido => FIFO.
func ParsePolicy(s string) Policy {
	if strings.EqualFold(strings.TrimSpace(s), string(PolicyFEFO)) {
		return PolicyFEFO
	}
	return PolicyFIFO
}

// Entry tramo de una asignación: cuánto se toma de un lote.
type Entry struct {
	BatchID    string
	SupplierID string
	Amount     int
	ExpiryDate time.Time
}

// Plan resultado puro de recorrer los lotes: tramos a aplicar y faltante.
type Plan struct {
	Entries   []Entry
	Shortfall int
}

// Total unidades cubiertas por el plan.
func (p Plan) Total() int {
	total := 0
	for _, e := range p.Entries {
		total += e.Amount
	}
	return total
}

// FilterEligible deja los lotes del producto consumibles en now.
func FilterEligible(batches []*entity.Batch, productID string, now time.Time) []*entity.Batch {
	out := make([]*entity.Batch, 0, len(batches))
	for _, b := range batches {
		if b.ProductID == productID && b.IsEligibleAt(now) {
			out = append(out, b)
		}
	}
	return out
}

// SortForConsumption ordena in-place según la política. Desempate: createdAt y luego ID.
func SortForConsumption(batches []*entity.Batch, policy Policy) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		var ka, kb time.Time
		if policy == PolicyFEFO {
			ka, kb = a.ExpiryDate, b.ExpiryDate
		} else {
			ka, kb = a.PurchaseDate, b.PurchaseDate
		}
		if !ka.Equal(kb) {
			return ka.Before(kb)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// PlanConsumption recorre los lotes ya filtrados y ordenados: toma min(remanente, pendiente) de cada uno.
func PlanConsumption(batches []*entity.Batch, quantity int) Plan {
	needed := quantity
	entries := make([]Entry, 0, len(batches))
	for _, b := range batches {
		if needed <= 0 {
			break
		}
		take := min(b.RemainingStock, needed)
		if take <= 0 {
			continue
		}
		entries = append(entries, Entry{BatchID: b.ID, SupplierID: b.SupplierID, Amount: take, ExpiryDate: b.ExpiryDate})
		needed -= take
	}
	return Plan{Entries: entries, Shortfall: max(needed, 0)}
}

// SortForRestock ordena del lote creado más recientemente al más antiguo.
func SortForRestock(batches []*entity.Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

// PlanRestock reparte quantity sobre el espacio libre (stock - remanente) de cada lote, en el orden dado.
// Shortfall > 0 indica que los lotes no tienen capacidad suficiente.
func PlanRestock(batches []*entity.Batch, quantity int) Plan {
	needed := quantity
	entries := make([]Entry, 0, len(batches))
	for _, b := range batches {
		if needed <= 0 {
			break
		}
		put := min(b.Headroom(), needed)
		if put <= 0 {
			continue
		}
		entries = append(entries, Entry{BatchID: b.ID, SupplierID: b.SupplierID, Amount: put, ExpiryDate: b.ExpiryDate})
		needed -= put
	}
	return Plan{Entries: entries, Shortfall: max(needed, 0)}
}

// BatchNumberPrefix parte fija del número de lote: <últimos 4 del producto>-<AAAAMMDD>-.
func BatchNumberPrefix(productID string, day time.Time) string {
	id := strings.ToUpper(strings.ReplaceAll(productID, "-", ""))
	if len(id) > 4 {
		id = id[len(id)-4:]
	}
	return id + "-" + day.Format("20060102") + "-"
}

// BatchNumber formato <últimos 4 del producto>-<AAAAMMDD>-<consecutivo de 3 dígitos>.
func BatchNumber(productID string, day time.Time, seq int) string {
	return fmt.Sprintf("%s%03d", BatchNumberPrefix(productID, day), seq)
}
