package tonewire

import (
	"errors"

	"github.com/norasector/tonewire/pkg/frame"
	"github.com/norasector/tonewire/pkg/modem"
	"github.com/norasector/tonewire/pkg/protocol"
)

var (
	ErrUnknownProtocol     = protocol.ErrUnknownProtocol
	ErrEmptyPayload        = frame.ErrEmptyPayload
	ErrPayloadTooLarge     = frame.ErrPayloadTooLarge
	ErrMalformedFrame      = frame.ErrMalformedFrame
	ErrUncorrectableFrame  = frame.ErrUncorrectableFrame
	ErrInvalidVolume       = modem.ErrInvalidVolume
	ErrUnsupportedProtocol = modem.ErrUnsupportedProtocol

	ErrProtocolDisabled  = errors.New("protocol disabled for transmit")
	ErrClosed            = errors.New("instance closed")
	ErrReceiveDisabled   = errors.New("instance not configured to receive")
	ErrTransmitDisabled  = errors.New("instance not configured to transmit")
	ErrInvalidParameters = errors.New("invalid parameters")
)
