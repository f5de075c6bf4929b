package rest

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	riskDomain "github.com/fd1az/arbguard/business/risk/domain"
	settlementDomain "github.com/fd1az/arbguard/business/settlement/domain"
	"github.com/fd1az/arbguard/internal/apperror"
)

// Amounts travel as decimal strings in base units so uint256 values survive
// JSON clients without 64-bit integers.

type flashLoanRequest struct {
	ChainID uint64 `json:"chainId" binding:"required"`
	Token   string `json:"token" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
	User    string `json:"user" binding:"required"`
}

type assessRequest struct {
	ChainID             uint64 `json:"chainId" binding:"required"`
	Token               string `json:"token"`
	Amount              string `json:"amount"`
	User                string `json:"user"`
	TargetChainID       uint64 `json:"targetChainId"`
	IncludeNetworkState bool   `json:"includeNetworkState"`
}

func (r assessRequest) params() (riskDomain.AssessmentParams, error) {
	p := riskDomain.AssessmentParams{
		TargetChainID:       r.TargetChainID,
		IncludeNetworkState: r.IncludeNetworkState,
	}
	var err error
	if p.Token, err = optionalAddress("token", r.Token); err != nil {
		return p, err
	}
	if p.User, err = optionalAddress("user", r.User); err != nil {
		return p, err
	}
	if r.Amount != "" {
		if p.Amount, err = parseAmount(r.Amount); err != nil {
			return p, err
		}
	}
	return p, nil
}

// swapRequest is shared by the MEV and settlement validation endpoints.
type swapRequest struct {
	ChainID     uint64 `json:"chainId" binding:"required"`
	SourceToken string `json:"sourceToken" binding:"required"`
	TargetToken string `json:"targetToken" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	User        string `json:"user"`
}

type parsedSwap struct {
	chainID uint64
	source  common.Address
	target  common.Address
	amount  *big.Int
	user    common.Address
}

func (r swapRequest) parse() (parsedSwap, error) {
	var (
		p   = parsedSwap{chainID: r.ChainID}
		err error
	)
	if p.source, err = parseAddress("sourceToken", r.SourceToken); err != nil {
		return p, err
	}
	if p.target, err = parseAddress("targetToken", r.TargetToken); err != nil {
		return p, err
	}
	if p.amount, err = parseAmount(r.Amount); err != nil {
		return p, err
	}
	if p.user, err = optionalAddress("user", r.User); err != nil {
		return p, err
	}
	return p, nil
}

type executeRequest struct {
	swapRequest
	Strategy *settlementDomain.SettlementStrategy `json:"strategy"`
}

type strategyResponse struct {
	Strategy   settlementDomain.SettlementStrategy    `json:"strategy"`
	Validation *settlementDomain.SettlementValidation `json:"validation"`
}

func parseAddress(field, s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, apperror.Validation(apperror.CodeInvalidAddress,
			fmt.Sprintf("%s: %q is not a hex address", field, s))
	}
	return common.HexToAddress(s), nil
}

func optionalAddress(field, s string) (common.Address, error) {
	if strings.TrimSpace(s) == "" {
		return common.Address{}, nil
	}
	return parseAddress(field, s)
}

// parseAmount accepts base-10 integers. Sign and range checks belong to the
// operation receiving the amount.
func parseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, apperror.Validation(apperror.CodeInvalidFormat,
			fmt.Sprintf("amount: %q is not a base-10 integer", s))
	}
	return amount, nil
}
