package dblevel

import "github.com/setavenger/sozudb/internal/logging"

func (s *SectorStore) Close() error {
	err := s.db.Close()
	if err != nil {
		logging.L.Err(err).Msg("error closing sector db")
		return err
	}
	logging.L.Info().Msg("sector db closed")
	return nil
}
