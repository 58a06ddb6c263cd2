package traffic

import (
	"time"
)

// IntervalAggregate is one 15-minute bucket of detections for one road segment.
// Column names follow the measurement-station export vocabulary; the pojazdy
// table is a compatibility contract shared with the downstream reporting tools.
type IntervalAggregate struct {
	BucketStart time.Time `gorm:"column:data_15min;primaryKey" json:"data_15min"`
	SegmentCode string    `gorm:"column:numer_odcinka;primaryKey" json:"numer_odcinka"`

	// Mean headway to the preceding vehicle, tenths of a second.
	MeanGap       *float64 `gorm:"column:srednia_przestrzen_pomiedzy_pojazdami" json:"srednia_przestrzen_pomiedzy_pojazdami"`
	WrongWayCount int      `gorm:"column:liczba_samochodow_jadaca_pod_prad" json:"liczba_samochodow_jadaca_pod_prad"`

	Lane1Count       int      `gorm:"column:liczba_na_pasie_1" json:"liczba_na_pasie_1"`
	HeavyLane1Count  int      `gorm:"column:liczba_samochodow_h_pas_1" json:"liczba_samochodow_h_pas_1"`
	HeavyLane1Speed  *float64 `gorm:"column:srednia_predkosc_h_pas_1" json:"srednia_predkosc_h_pas_1"`
	HeavyLane1Length *float64 `gorm:"column:srednia_dlugosc_h_pas_1" json:"srednia_dlugosc_h_pas_1"`
	LightLane1Count  int      `gorm:"column:liczba_samochodow_l_pas_1" json:"liczba_samochodow_l_pas_1"`
	LightLane1Speed  *float64 `gorm:"column:srednia_predkosc_l_pas_1" json:"srednia_predkosc_l_pas_1"`
	LightLane1Length *float64 `gorm:"column:srednia_dlugosc_l_pas_1" json:"srednia_dlugosc_l_pas_1"`

	Lane2Count       int      `gorm:"column:liczba_na_pasie_2" json:"liczba_na_pasie_2"`
	HeavyLane2Count  int      `gorm:"column:liczba_samochodow_h_pas_2" json:"liczba_samochodow_h_pas_2"`
	HeavyLane2Speed  *float64 `gorm:"column:srednia_predkosc_h_pas_2" json:"srednia_predkosc_h_pas_2"`
	HeavyLane2Length *float64 `gorm:"column:srednia_dlugosc_h_pas_2" json:"srednia_dlugosc_h_pas_2"`
	LightLane2Count  int      `gorm:"column:liczba_samochodow_l_pas_2" json:"liczba_samochodow_l_pas_2"`
	LightLane2Speed  *float64 `gorm:"column:srednia_predkosc_l_pas_2" json:"srednia_predkosc_l_pas_2"`
	LightLane2Length *float64 `gorm:"column:srednia_dlugosc_l_pas_2" json:"srednia_dlugosc_l_pas_2"`
}

func (IntervalAggregate) TableName() string {
	return "pojazdy"
}

// SectionInfo is a segment code joined with its human-readable display label.
type SectionInfo struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// Coordinates is a WGS84 position looked up from the reference workbook.
type Coordinates struct {
	N string `json:"N_wgs84"`
	E string `json:"E_wgs84"`
}
