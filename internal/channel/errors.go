package channel

import "errors"

var (
	// ErrAlreadyBound는 해당 포트에 이미 채널이 등록되어 있을 때 반환됩니다
	ErrAlreadyBound = errors.New("channel already bound")
	// ErrBindFailed는 포트 바인드에 실패했을 때 반환됩니다 (다른 프로세스 사용 중, 권한 없음)
	ErrBindFailed = errors.New("bind failed")
	// ErrNotFound는 포트에 등록된 채널이 없을 때 반환됩니다
	ErrNotFound = errors.New("channel not found")
	// ErrInvalidPort는 1-65535 범위를 벗어난 포트입니다
	ErrInvalidPort = errors.New("invalid port")
	// ErrUnknownType은 디코더가 등록되지 않은 채널 타입입니다
	ErrUnknownType = errors.New("unknown channel type")

	errFrameTooLarge  = errors.New("frame exceeds buffer limit")
	errMalformedFrame = errors.New("malformed frame")
)
