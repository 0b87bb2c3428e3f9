package source

import (
	"fmt"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"location-spoof-guard/internal/telemetry"
)

const (
	knotsToMetersPerSecond = 0.514444

	// Horizontal accuracy estimate: HDOP times a nominal user range error.
	hdopRangeErrorMeters = 5.0
)

// nmeaAssembly folds a raw NMEA sentence stream into complete fixes. GGA
// sentences contribute altitude and an HDOP-derived accuracy; each valid
// RMC sentence closes one fix, mirroring how GPS producers publish per-RMC.
type nmeaAssembly struct {
	altitude float64
	accuracy float64
	haveGGA  bool
}

// Ingest parses one sentence. ok is true when the sentence completed a fix.
func (a *nmeaAssembly) Ingest(raw string) (telemetry.Fix, bool, error) {
	sentence, err := nmea.Parse(raw)
	if err != nil {
		return telemetry.Fix{}, false, fmt.Errorf("parse nmea: %w", err)
	}

	switch sentence.DataType() {
	case nmea.TypeGGA:
		gga := sentence.(nmea.GGA)
		a.altitude = gga.Altitude
		a.accuracy = gga.HDOP * hdopRangeErrorMeters
		a.haveGGA = true
		return telemetry.Fix{}, false, nil

	case nmea.TypeRMC:
		rmc := sentence.(nmea.RMC)
		if rmc.Validity != "A" {
			return telemetry.Fix{}, false, nil
		}
		fix := telemetry.Fix{
			Latitude:  rmc.Latitude,
			Longitude: rmc.Longitude,
			Speed:     rmc.Speed * knotsToMetersPerSecond,
			Time:      rmcTime(rmc),
		}
		if a.haveGGA {
			fix.Altitude = a.altitude
			fix.Accuracy = a.accuracy
		}
		return fix, true, nil

	default:
		return telemetry.Fix{}, false, nil
	}
}

func rmcTime(rmc nmea.RMC) time.Time {
	if !rmc.Date.Valid || !rmc.Time.Valid {
		return time.Now().UTC()
	}
	return time.Date(
		2000+rmc.Date.YY, time.Month(rmc.Date.MM), rmc.Date.DD,
		rmc.Time.Hour, rmc.Time.Minute, rmc.Time.Second,
		rmc.Time.Millisecond*int(time.Millisecond),
		time.UTC,
	)
}
