package domain

import (
	"sort"
	"strconv"
)

// RegionTier classifies a shipping destination for surcharge purposes.
type RegionTier int

const (
	RegionMainland RegionTier = iota + 1
	RegionJeju
	RegionOutsideJeju
)

func (r RegionTier) String() string {
	switch r {
	case RegionJeju:
		return "JEJU"
	case RegionOutsideJeju:
		return "OUTSIDE_JEJU"
	default:
		return "MAINLAND"
	}
}

type postalRange struct {
	lo, hi int
}

// Jeju island postal codes.
var jejuRanges = []postalRange{
	{63000, 63644},
}

// Remote islands outside Jeju that still carry an additional fee.
var outsideJejuRanges = []postalRange{
	{22386, 22388}, // Incheon Jung-gu islands
	{23004, 23010}, // Incheon Ganghwa islands
	{23100, 23116}, // Incheon Ongjin islands
	{23124, 23136},
	{28826, 28826},
	{31708, 31708}, // Chungnam Dangjin islands
	{32133, 32133}, // Chungnam Taean islands
	{33411, 33411}, // Chungnam Boryung islands
	{40200, 40240}, // Ulleungdo
	{46768, 46771}, // Busan Gangseo-gu islands
	{52570, 52571}, // Kyungnam Sacheon islands
	{53031, 53033}, // Kyungnam Tongyeong islands
	{53089, 53104},
	{54000, 54000},
	{56347, 56349}, // Jeonbuk Buan islands
	{57068, 57069}, // Jeonnam Yeonggwang islands
	{58760, 58762}, // Jeonnam Mokpo islands
	{58800, 58810}, // Jeonnam Shinan islands
	{58816, 58818},
	{58828, 58866},
	{58953, 58958}, // Jeonnam Jindo islands
	{59102, 59103}, // Jeonnam Wando islands
	{59106, 59106},
	{59127, 59127},
	{59129, 59129},
	{59137, 59166},
	{59650, 59650}, // Jeonnam Yeosu islands
	{59766, 59766},
	{59781, 59790},
}

// ResolveRegion maps a postal code to its region tier. It is a pure, total
// function: malformed codes resolve to the mainland tier.
func ResolveRegion(postalCode string) RegionTier {
	code, err := strconv.Atoi(postalCode)
	if err != nil {
		return RegionMainland
	}
	if inRanges(jejuRanges, code) {
		return RegionJeju
	}
	if inRanges(outsideJejuRanges, code) {
		return RegionOutsideJeju
	}
	return RegionMainland
}

func inRanges(ranges []postalRange, code int) bool {
	i := sort.Search(len(ranges), func(i int) bool { return ranges[i].hi >= code })
	return i < len(ranges) && ranges[i].lo <= code
}
