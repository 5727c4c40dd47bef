package models

// Requests for the read-only HTTP API.

type PoolsRequest struct {
	Resolution string `query:"resolution" json:"resolution"`
	State      string `query:"state" json:"state" default:"live" validate:"oneof=live active touched expired"`
	Limit      int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=10000"`
}

type PoolRequest struct {
	ID string `param:"id" json:"id" validate:"required"`
}

type ZonesRequest struct {
	Side  string `query:"side" json:"side" default:"all" validate:"oneof=all bullish bearish"`
	Limit int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=10000"`
}
