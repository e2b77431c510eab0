package outbox

const recommendationCreatedSchema = `{
  "type": "object",
  "title": "RecommendationCreated",
  "properties": {
    "recommendation_id": {"type": "string"},
    "activity_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "activity_type": {"type": "string"},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["recommendation_id", "activity_id", "tenant_id", "user_id", "activity_type", "created_at"],
  "additionalProperties": false
}`
