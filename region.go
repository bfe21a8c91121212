package reader

// Region is the regulatory region controlling frequency hop table, power,
// and listen-before-talk behavior.
type Region int

const (
	RegionUnspec Region = iota
	RegionNA
	RegionEU
	RegionEU2
	RegionEU3
	RegionKR
	RegionKR2
	RegionIN
	RegionJP
	RegionPRC
	RegionPRC2
	RegionAU
	RegionNZ
	RegionOpen
	RegionManufacturing
)

// regionCodes is the fixed bidirectional mapping between Region and the
// wire-level region code from spec §6.
var regionCodes = map[Region]byte{
	RegionUnspec: 0,
	RegionNA:     1,
	RegionEU:     2,
	RegionKR:     3,
	RegionIN:     4,
	RegionJP:     5,
	RegionPRC:    6,
	RegionEU2:    7,
	RegionEU3:    8,
	RegionKR2:    9,
	RegionPRC2:   10,
	RegionAU:     11,
	RegionNZ:     12,
	RegionOpen:   255,
	// RegionManufacturing has no standard wire code in the documented table;
	// it is a local-only value never sent over the wire.
}

var codeToRegion = func() map[byte]Region {
	m := make(map[byte]Region, len(regionCodes))
	for r, c := range regionCodes {
		m[c] = r
	}
	return m
}()

// Code returns the wire-level region code for r.
func (r Region) Code() (byte, bool) {
	c, ok := regionCodes[r]
	return c, ok
}

// RegionFromCode reverses Code. Unknown codes map to RegionUnspec.
func RegionFromCode(code byte) Region {
	if r, ok := codeToRegion[code]; ok {
		return r
	}
	return RegionUnspec
}

func (r Region) String() string {
	switch r {
	case RegionUnspec:
		return "UNSPEC"
	case RegionNA:
		return "NA"
	case RegionEU:
		return "EU"
	case RegionEU2:
		return "EU2"
	case RegionEU3:
		return "EU3"
	case RegionKR:
		return "KR"
	case RegionKR2:
		return "KR2"
	case RegionIN:
		return "IN"
	case RegionJP:
		return "JP"
	case RegionPRC:
		return "PRC"
	case RegionPRC2:
		return "PRC2"
	case RegionAU:
		return "AU"
	case RegionNZ:
		return "NZ"
	case RegionOpen:
		return "OPEN"
	case RegionManufacturing:
		return "MANUFACTURING"
	default:
		return "UNKNOWN"
	}
}
