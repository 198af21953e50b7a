package model

// PoolState is a pool snapshot record for storage.
type PoolState struct {
	Asset        string `json:"asset"`
	BaseAsset    string `json:"base_asset"`
	Account      string `json:"account"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	AssetReserve string `json:"asset_reserve"`
	BaseReserve  string `json:"base_reserve"`
	TotalShares  string `json:"total_shares"`
	Holders      int    `json:"holders"`
}
