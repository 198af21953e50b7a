package model

// PoolCreatedData is the payload of a pool_created event.
type PoolCreatedData struct {
	Account string `json:"account"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// LiquidityAddedData is the payload of a liquidity_added event.
type LiquidityAddedData struct {
	Provider    string `json:"provider"`
	AssetAmount string `json:"asset_amount"`
	BaseAmount  string `json:"base_amount"`
	Shares      string `json:"shares"`
}

// LiquidityRemovedData is the payload of a liquidity_removed event.
type LiquidityRemovedData struct {
	Provider    string `json:"provider"`
	Shares      string `json:"shares"`
	AssetAmount string `json:"asset_amount"`
	BaseAmount  string `json:"base_amount"`
}

// SwapData is the payload of a swap event.
type SwapData struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	InputSide string `json:"input_side"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
}

// RoutedSwapData is the payload of a routed_swap event. The event's Pool is the source pool.
type RoutedSwapData struct {
	Sender          string `json:"sender"`
	DestinationPool string `json:"destination_pool"`
	AmountIn        string `json:"amount_in"`
	BaseAmount      string `json:"base_amount"`
	AmountOut       string `json:"amount_out"`
}

// SharesTransferredData is the payload of a shares_transferred event.
type SharesTransferredData struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}
