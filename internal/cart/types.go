package cart

import (
	"context"

	"tradelink/internal/model"
)

// DiscountEnrollmentDriver attaches a trade-in discount by walking the
// storefront's trade-in panel for one device.
//
// Enroll returns the order form id of the cart it filled. A cart that could
// not be confirmed for the placeholder region fails with
// OUT_OF_STOCK_FOR_REGION; any other missing step fails with
// LINK_GENERATION_FAILED.
type DiscountEnrollmentDriver interface {
	Enroll(ctx context.Context, dc model.DiscountContext) (orderFormID string, err error)
}

type orderFormResponse struct {
	OrderFormID string `json:"orderFormId"`
}

type orderItem struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
	Seller   string `json:"seller"`
}

type addItemsRequest struct {
	OrderItems []orderItem `json:"orderItems"`
}

type productGroup struct {
	MarketingTag string `json:"marketingTag"`
}

type marketingDataRequest struct {
	MarketingTags []string `json:"marketingTags"`
}
