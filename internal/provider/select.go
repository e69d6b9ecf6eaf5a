package provider

import (
	"fmt"

	"nba_analytics/ingestion/internal/config"
	"nba_analytics/ingestion/internal/models"
)

// Sources holds the constructed API sources adapters are chosen from
type Sources struct {
	BallDontLie *BallDontLie
	Odds        *TheOddsAPI
}

// Select picks exactly one adapter per record kind from the DATA_SOURCE_* names
func Select(gamesSrc, injuriesSrc, oddsSrc string, src Sources) (Set, error) {
	if src.BallDontLie == nil || src.Odds == nil {
		return Set{}, fmt.Errorf("provider sources are not fully constructed")
	}

	var set Set
	set.Teams = src.BallDontLie

	switch gamesSrc {
	case config.SourceBallDontLie:
		set.Games = src.BallDontLie.Games()
	case config.SourceBBRef, config.SourceScrape:
		set.Games = NewLegacy[models.GameRecord](gamesSrc, src.BallDontLie.Games())
	default:
		return Set{}, fmt.Errorf("unknown games data source %q", gamesSrc)
	}

	switch injuriesSrc {
	case config.SourceBallDontLie:
		set.Injuries = src.BallDontLie.Injuries()
	case config.SourcePDF, config.SourceScrape:
		set.Injuries = NewLegacy[models.InjuryRecord](injuriesSrc, src.BallDontLie.Injuries())
	default:
		return Set{}, fmt.Errorf("unknown injuries data source %q", injuriesSrc)
	}

	switch oddsSrc {
	case config.SourceTheOddsAPI:
		set.Odds = src.Odds
	case config.SourceScrape:
		set.Odds = NewLegacy[models.OddsLine](oddsSrc, src.Odds)
	default:
		return Set{}, fmt.Errorf("unknown odds data source %q", oddsSrc)
	}

	return set, nil
}
