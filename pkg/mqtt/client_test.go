package mqtt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/amrfleet/pkg/mqtt/topic"
)

func TestTopicsMatch(t *testing.T) {
	cases := []struct {
		filter, topic string
		want          bool
	}{
		{"amr/v1/robot/AMR-001/fault", "amr/v1/robot/AMR-001/fault", true},
		{"amr/v1/robot/+/fault", "amr/v1/robot/AMR-001/fault", true},
		{"amr/v1/robot/+/fault", "amr/v1/robot/AMR-001/status", false},
		{"amr/v1/robot/+/fault", "amr/v1/robot/AMR-001/fault/extra", false},
		{"amr/v1/#", "amr/v1/instance/abc/status", true},
		{"amr/v1/robot/+", "amr/v1/robot", false},
		{"amr/v1/robot", "amr/v1/robots", false},
		{"amr/v1/" + topic.MultiWildcard, "amr/v1", true},
		{topic.MultiWildcard, "amr/v1/robot/AMR-001/fault", true},
		{"amr/v2/" + topic.MultiWildcard, "amr/v1/robot", false},
		{topic.NewTopicBuilder("amr/v1").RobotFaultWildcard(), "amr/v1/robot/AMR-002/fault", true},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, topicsMatch(tc.filter, tc.topic), "%s vs %s", tc.filter, tc.topic)
	}
}

func TestTopicFilter(t *testing.T) {
	require.Equal(t, "amr/v1/robot/+/fault", topicFilter("$share/fleet/amr/v1/robot/+/fault"))
	require.Equal(t, "amr/v1/robot/+/fault", topicFilter("amr/v1/robot/+/fault"))
	require.Equal(t, "$share/fleet", topicFilter(topic.SharePrefix+"fleet"))
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(nil)
	require.Error(t, err)

	_, err = NewClient(&ClientConfig{})
	require.Error(t, err)

	_, err = NewClient(&ClientConfig{BrokerURL: "http://broker:1883"})
	require.Error(t, err)

	_, err = NewClient(&ClientConfig{BrokerURL: "tcp://broker:1883", WillQoS: 3})
	require.Error(t, err)

	cfg := &ClientConfig{BrokerURL: "tcp://broker:1883"}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	require.False(t, c.IsConnected())
	require.EqualValues(t, 60, cfg.KeepAlive)
	require.NotZero(t, cfg.ConnectTimeout)
	require.NotZero(t, cfg.ReconnectBackoff)
}

func TestWillMessage(t *testing.T) {
	c := &pahoClient{cfg: &ClientConfig{}}
	require.Nil(t, c.willMessage())

	c.cfg.WillTopic = "amr/v1/fleetd/status"
	c.cfg.WillPayload = []byte("offline")
	c.cfg.WillQoS = 1
	c.cfg.WillRetain = true
	w := c.willMessage()
	require.NotNil(t, w)
	require.Equal(t, "amr/v1/fleetd/status", w.Topic)
	require.True(t, w.Retain)
	require.EqualValues(t, 1, w.QoS)
}
