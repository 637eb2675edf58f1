package http

import (
	"github.com/jhoicas/stockledger-api/internal/application/dto"
	"github.com/jhoicas/stockledger-api/internal/application/inventory"
	"github.com/jhoicas/stockledger-api/internal/domain"
	"github.com/jhoicas/stockledger-api/internal/domain/entity"
	domaininv "github.com/jhoicas/stockledger-api/internal/domain/inventory"
)

func toRecordInput(in dto.CreateTransactionRequest, userID string) inventory.RecordInput {
	items := make([]entity.TransactionItem, 0, len(in.Items))
	for _, it := range in.Items {
		items = append(items, entity.TransactionItem{
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			ExpiryDate: it.ExpiryDate,
		})
	}
	return inventory.RecordInput{
		Type:            in.Type,
		ReturnKind:      in.ReturnKind,
		Items:           items,
		TotalAmount:     in.TotalAmount,
		SupplierID:      in.SupplierID,
		Notes:           in.Notes,
		TransactionDate: in.TransactionDate,
		CreatedBy:       userID,
	}
}

func toTransactionResponse(t *entity.Transaction) dto.TransactionResponse {
	items := make([]dto.TransactionItemResponse, 0, len(t.Items))
	for _, it := range t.Items {
		items = append(items, dto.TransactionItemResponse{
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			ExpiryDate: it.ExpiryDate,
		})
	}
	return dto.TransactionResponse{
		ID:              t.ID,
		OrderNumber:     t.OrderNumber,
		Type:            t.Type,
		ReturnKind:      t.ReturnKind,
		Items:           items,
		BatchesUsed:     toBatchUsages(t.BatchesUsed),
		TotalAmount:     t.TotalAmount,
		SupplierID:      t.SupplierID,
		Notes:           t.Notes,
		TransactionDate: t.TransactionDate,
		CreatedBy:       t.CreatedBy,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func toBatchUsages(usages []entity.BatchUsage) []dto.BatchUsageResponse {
	out := make([]dto.BatchUsageResponse, 0, len(usages))
	for _, u := range usages {
		out = append(out, dto.BatchUsageResponse{BatchID: u.BatchID, ProductID: u.ProductID, QuantityUsed: u.QuantityUsed})
	}
	return out
}

func toAttempts(attempts []domain.StockAttempt) []dto.StockAttemptResponse {
	if len(attempts) == 0 {
		return nil
	}
	out := make([]dto.StockAttemptResponse, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, dto.StockAttemptResponse{ProductID: a.ProductID, Requested: a.Requested, Available: a.Available})
	}
	return out
}

func toInsufficientStockDetails(e *domain.InsufficientStockError) dto.InsufficientStockDetails {
	return dto.InsufficientStockDetails{
		ProductID: e.ProductID,
		Requested: e.Requested,
		Shortfall: e.Shortfall,
		Attempts:  toAttempts(e.Attempts),
	}
}

func toDeductResponse(r *inventory.DeductResult) dto.DeductResponse {
	products := make([]dto.ProductDeductionResponse, 0, len(r.Products))
	for _, p := range r.Products {
		products = append(products, dto.ProductDeductionResponse{
			ProductID:     p.ProductID,
			Deducted:      p.Deducted,
			TransactionID: p.TransactionID,
			OrderNumber:   p.OrderNumber,
		})
	}
	suppliers := r.SupplierIDs
	if suppliers == nil {
		suppliers = []string{}
	}
	return dto.DeductResponse{
		Status:            r.Status,
		Requested:         r.Requested,
		TotalDeducted:     r.TotalDeducted,
		RemainingToDeduct: r.RemainingToDeduct,
		Products:          products,
		Batches:           toBatchUsages(r.Batches),
		SupplierIDs:       suppliers,
		Attempts:          toAttempts(r.Attempts),
		Skipped:           r.Skipped,
	}
}

func toBatchResponse(b *entity.Batch) dto.BatchResponse {
	return dto.BatchResponse{
		ID:             b.ID,
		BatchNumber:    b.BatchNumber,
		ProductID:      b.ProductID,
		SupplierID:     b.SupplierID,
		TransactionID:  b.TransactionID,
		Stock:          b.Stock,
		RemainingStock: b.RemainingStock,
		ExpiryDate:     b.ExpiryDate,
		PurchaseDate:   b.PurchaseDate,
		CostPrice:      b.CostPrice,
		Status:         b.Status,
		Condition:      b.Condition,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
}

func toProductStockResponse(ps *inventory.ProductStock, threshold int) dto.ProductStockResponse {
	batches := make([]dto.BatchResponse, 0, len(ps.Batches))
	for _, b := range ps.Batches {
		batches = append(batches, toBatchResponse(b))
	}
	return dto.ProductStockResponse{
		ProductID:  ps.Product.ID,
		Name:       ps.Product.Name,
		Status:     ps.Product.Status,
		TotalStock: ps.Product.TotalStock,
		StockLevel: domaininv.Classify(ps.Product.TotalStock, threshold).String(),
		Batches:    batches,
	}
}

func toNotificationResponse(n *entity.Notification, userID string) dto.NotificationResponse {
	reads := make([]dto.NotificationReadResponse, 0, len(n.ReadBy))
	for _, r := range n.ReadBy {
		reads = append(reads, dto.NotificationReadResponse{UserID: r.UserID, ReadAt: r.ReadAt})
	}
	return dto.NotificationResponse{
		ID:            n.ID,
		Message:       n.Message,
		Type:          n.Type,
		RelatedEntity: n.RelatedEntity,
		EntityType:    n.EntityType,
		IsRead:        n.IsRead,
		ReadByMe:      n.HasRead(userID),
		ReadBy:        reads,
		CreatedBy:     n.CreatedBy,
		CreatedAt:     n.CreatedAt,
	}
}
