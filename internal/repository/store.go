package repository

// Store is the tracking loops' view of persistence.
type Store struct {
	*PlayerRepository
	*GuildRepository
}

func NewStore(players *PlayerRepository, guilds *GuildRepository) *Store {
	return &Store{PlayerRepository: players, GuildRepository: guilds}
}
