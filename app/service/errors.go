package service

import "errors"

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentAlreadyExists = errors.New("payment already exists")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrConfiguration        = errors.New("solana pay is not configured")
	ErrStateConflict        = errors.New("payment state changed concurrently")
	ErrEndpointNotFound     = errors.New("rpc endpoint not found")
)
