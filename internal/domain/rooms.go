package domain

// Room name constructors. A room is a named broadcast scope that
// connections subscribe to for receiving relevant events.

func TenantRoom(tenantID string) string    { return "tenant:" + tenantID }
func QueueRoom(queueID string) string      { return "queue:" + queueID }
func CampaignRoom(campaignID string) string { return "campaign:" + campaignID }
func DashboardRoom(tenantID string) string { return "dashboard:" + tenantID }
