package rabbitmq

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTask(t *testing.T) {
	task, err := decodeTask([]byte(`{"job_id":"01J","target":"Slack","mode":"quick","credentials":"k"}`))
	require.NoError(t, err)
	assert.Equal(t, "01J", task.JobID)
	assert.Equal(t, "Slack", task.Target)

	_, err = decodeTask([]byte(`{"target":"Slack"}`))
	assert.Error(t, err)

	_, err = decodeTask([]byte(`not json`))
	assert.Error(t, err)
}

func TestRetryCount(t *testing.T) {
	assert.Equal(t, 0, retryCount(nil))
	assert.Equal(t, 0, retryCount(amqp.Table{"other": "x"}))
	assert.Equal(t, 2, retryCount(amqp.Table{retryHeader: int32(2)}))
	assert.Equal(t, 3, retryCount(amqp.Table{retryHeader: int64(3)}))
}

func TestDeadLetterPublishing_DropsCredentials(t *testing.T) {
	body := []byte(`{"job_id":"01J","target":"Slack","mode":"quick","credentials":"sk-secret"}`)
	task, err := decodeTask(body)
	require.NoError(t, err)

	d := amqp.Delivery{MessageId: "01J", Headers: amqp.Table{retryHeader: int32(3)}, Body: body}
	msg, err := deadLetterPublishing(d, task, "gave up after 3 retries")
	require.NoError(t, err)

	assert.NotContains(t, string(msg.Body), "sk-secret")
	dead, err := decodeTask(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, "01J", dead.JobID)
	assert.Equal(t, "Slack", dead.Target)
	assert.Empty(t, dead.Credentials)

	assert.Equal(t, "01J", msg.MessageId)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, 3, retryCount(msg.Headers))
	assert.Equal(t, "gave up after 3 retries", msg.Headers[reasonHeader])
	// the delivery's own headers are left alone
	assert.NotContains(t, d.Headers, reasonHeader)
	assert.Equal(t, "sk-secret", task.Credentials)
}

func TestQueueNames(t *testing.T) {
	assert.Equal(t, "research_jobs.retry", retryQueue("research_jobs"))
	assert.Equal(t, "research_jobs.dlq", deadQueue("research_jobs"))
}
