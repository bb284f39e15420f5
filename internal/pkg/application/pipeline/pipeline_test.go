package pipeline

import (
	"fmt"
	"strings"
	"testing"

	"github.com/diwise/transit-publisher/pkg/ngsi"
	"github.com/diwise/transit-publisher/pkg/ost"
	"github.com/matryer/is"
)

func TestHints(t *testing.T) {
	is := is.New(t)

	is.True(strings.Contains(Hint(stageError(StageFetchAgency, ost.NewMissingCredentialsError("https://api.ost.pt/agencies"))), "echo $OST_SERVER_KEY"))
	is.True(strings.Contains(Hint(ost.NewInvalidCredentialsError()), "valid Server Key"))
	is.True(strings.Contains(Hint(ost.NewSourceUnavailableError("Temporarily Down")), "seems to be down"))

	rejected := ngsi.NewEntityStoreRejectedError("Trip", []byte(`{"errorCode":{}}`))
	is.Equal(Hint(rejected), "Unable to insert data, Trip update unsuccessful. context broker returned: {\"errorCode\":{}}")

	is.Equal(Hint(fmt.Errorf("boom")), "Unable to fetch data, boom")
	is.Equal(Hint(nil), "")
}

func TestReportAccumulatesPerStage(t *testing.T) {
	is := is.New(t)

	r := Report{}
	r.Add(StageFetchStops, 3)
	r.Add(StageUpsertPlaces, 2)
	r.Add(StageFetchStops, 4)

	is.Equal(r.Count(StageFetchStops), 7)
	is.Equal(len(r.Stages), 2)
	is.Equal(r.Count("Unknown"), 0)
}
