package sync_repository

import (
	"encoding/json"

	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/platform/logger"

	"github.com/sirupsen/logrus"
)

func deserializeCounts(serializedCounts []byte) map[domain.EntityType]domain.EntityCounts {
	counts := make(map[domain.EntityType]domain.EntityCounts)
	if len(serializedCounts) > 0 {
		err := json.Unmarshal(serializedCounts, &counts)
		if err != nil {
			logger.Log.WithFields(logrus.Fields{"error": err}).Error("Unable to unmarshal run counts from database")
		}
	}
	return counts
}

func deserializeErrorDetail(serializedErrors []byte) []domain.EntityError {
	var entityErrors []domain.EntityError
	if len(serializedErrors) > 0 {
		err := json.Unmarshal(serializedErrors, &entityErrors)
		if err != nil {
			logger.Log.WithFields(logrus.Fields{"error": err}).Error("Unable to unmarshal run error detail from database")
		}
	}
	return entityErrors
}

func deserializeCandidates(serializedCandidates []byte) []domain.MatchCandidate {
	var candidates []domain.MatchCandidate
	if len(serializedCandidates) > 0 {
		err := json.Unmarshal(serializedCandidates, &candidates)
		if err != nil {
			logger.Log.WithFields(logrus.Fields{"error": err}).Error("Unable to unmarshal match candidates from database")
		}
	}
	return candidates
}
