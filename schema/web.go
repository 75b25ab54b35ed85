package schema

import "time"

type StatusResponse struct {
	Season            int   `json:"season"`
	LatestScoredBlock int64 `json:"latestScoredBlock"`
}

type LeaderBoardRequest struct {
	Address string `query:"address"`
}

type LeaderBoardResponse struct {
	Season    int                  `json:"season"`
	Me        *LeaderBoardAccount  `json:"me,omitempty"`
	Accounts  []LeaderBoardAccount `json:"accounts"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

type LeaderBoardAccount struct {
	Ranking       int     `json:"ranking"`
	UserName      string  `json:"userName"`
	Address       string  `json:"address"`
	TotalPoint    float64 `json:"totalPoint"`
	HoldPoint     float64 `json:"holdPoint"`
	TxPoint       float64 `json:"txPoint"`
	ReferralPoint float64 `json:"referralPoint"`
}

type SearchAccountRequest struct {
	Query string `query:"query"`
}

type SearchAccountResponse struct {
	Season    int                 `json:"season"`
	Account   *LeaderBoardAccount `json:"account,omitempty"`
	UpdatedAt time.Time           `json:"updatedAt"`
}
