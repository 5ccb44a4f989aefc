package transport

type JoinSessionRequest struct {
	Code string `json:"code"`
}

type AddItemRequest struct {
	ItemID string  `json:"item_id"`
	Name   string  `json:"name"`
	Price  float64 `json:"price"`
	Image  string  `json:"image"`
}

type UpdateQuantityRequest struct {
	Delta int `json:"delta"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

type RemovedResponse struct {
	ItemID  string `json:"item_id"`
	Removed bool   `json:"removed"`
}

// CallInfo is the video call provisioning payload: the channel is the session
// code, the transport itself is external.
type CallInfo struct {
	AppID   string `json:"app_id"`
	Channel string `json:"channel"`
}

type SearchResponse struct {
	Total int64 `json:"total"`
	Items any   `json:"items"`
}
