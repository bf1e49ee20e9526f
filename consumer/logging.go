package consumer

import (
	"strconv"

	"github.com/mailgun/log"

	"github.com/progressions/gruntle/internal/actor"
)

func partitionLabel(partition int32) string {
	return strconv.Itoa(int(partition))
}

func logCommitFailure(cid *actor.ID, err error) {
	log.Errorf("<%s> commit failed, will retry: %s", cid, err)
}

func logCloseFailure(cid *actor.ID, err error) {
	log.Errorf("<%s> broker close failed: %s", cid, err)
}
