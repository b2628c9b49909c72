package main

type GameSettings struct {
	// Seed 0 picks a random seed when the game starts.
	Seed    uint32 `json:"seed"`
	MaxRank int    `json:"max_rank"`
	Record  bool   `json:"record"`
}

func DefaultGameSettings() GameSettings {
	cfg := GetConfig()
	return GameSettings{
		Seed:    cfg.Seed,
		MaxRank: cfg.MaxRank,
		Record:  cfg.RecordReplays,
	}
}

func settingsFromDTO(dto GameSettingsDTO, base GameSettings) GameSettings {
	settings := base
	if dto.Seed != nil {
		settings.Seed = *dto.Seed
	}
	if dto.MaxRank != nil {
		settings.MaxRank = clamp(*dto.MaxRank, 0, 15)
	}
	if dto.Record != nil {
		settings.Record = *dto.Record
	}
	return settings
}
