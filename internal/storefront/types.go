package storefront

// capacityResponse is the subset of the search API card-detail response
// that lists the memory options of a model family. The pointers tell a
// missing path apart from an empty product list.
type capacityResponse struct {
	Response *struct {
		ResultData *struct {
			ProductList []capacityProduct `json:"productList"`
		} `json:"resultData"`
	} `json:"response"`
}

type capacityProduct struct {
	ChipOptions []struct {
		FmyChipType string `json:"fmyChipType"`
		OptionList  []struct {
			OptionCode string `json:"optionCode"`
		} `json:"optionList"`
	} `json:"chipOptions"`
}

// productList returns response.resultData.productList, or false when any
// part of that path is missing or null.
func (c *capacityResponse) productList() ([]capacityProduct, bool) {
	if c.Response == nil || c.Response.ResultData == nil || c.Response.ResultData.ProductList == nil {
		return nil, false
	}
	return c.Response.ResultData.ProductList, true
}

// memoryChipType marks the option group that carries storage capacities.
const memoryChipType = "MOBILE MEMORY"

// catalogProduct is one entry of the catalog_system product search response.
type catalogProduct struct {
	ProductID      string        `json:"productId"`
	InternalMemory []string      `json:"INTERNAL_MEMORY"`
	Items          []catalogItem `json:"items"`
}

// catalogItem is one SKU (a color) of a catalog product.
type catalogItem struct {
	ItemID  string `json:"itemId"`
	Name    string `json:"name"`
	Sellers []struct {
		CommertialOffer struct {
			IsAvailable bool `json:"IsAvailable"`
		} `json:"commertialOffer"`
	} `json:"sellers"`
}

// available reports whether the first seller has the item in stock.
func (i catalogItem) available() bool {
	return len(i.Sellers) > 0 && i.Sellers[0].CommertialOffer.IsAvailable
}
