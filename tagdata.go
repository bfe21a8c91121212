package reader

import "time"

// Protocol identifies the air-interface protocol a tag was singulated under.
type Protocol int

const (
	ProtocolNone Protocol = iota
	ProtocolGen2
	ProtocolISO18000_6B
	ProtocolIPX
)

func (p Protocol) String() string {
	switch p {
	case ProtocolGen2:
		return "GEN2"
	case ProtocolISO18000_6B:
		return "ISO180006B"
	case ProtocolIPX:
		return "IPX"
	default:
		return "NONE"
	}
}

// TagData identifies a tag: its EPC (or equivalent ID) bytes, the protocol it
// was read under, and an optional CRC reported alongside the ID.
type TagData struct {
	EPC      []byte
	Protocol Protocol
	CRC      []byte // nil when the reader did not report a CRC
}

// TagReadData is the immutable result of one observed tag singulation.
type TagReadData struct {
	Tag       TagData
	Antenna   int
	Protocol  Protocol
	Timestamp time.Time
	RSSI      int
	ReadCount int
	OpResult  []byte // non-nil when a TagOp accompanied the read
}

// SelectBank names a Gen2 memory bank a Select filter targets.
type SelectBank int

const (
	BankReserved SelectBank = iota
	BankEPC
	BankTID
	BankUser
)

// TagFilter narrows which tags participate in a read or tag-op. A nil
// *TagFilter selects whatever tag singulates first. Exactly one of EPC or
// Select should be populated; Select is nil for a plain EPC match filter and
// vice versa.
type TagFilter struct {
	EPC    []byte // non-nil for an EPC-match selector
	Select *Gen2Select
}

// Gen2Select is a Gen2 Select command: invert the match, target a memory
// bank, bit offset and length, and the mask bytes to compare against.
type Gen2Select struct {
	Invert    bool
	Bank      SelectBank
	BitOffset int
	BitLength int
	Mask      []byte
}
