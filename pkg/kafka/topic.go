package kafka

// TopicPrefix namespaces every topic this service writes to.
const TopicPrefix = "storefront"

// Topic builds a topic name of the form storefront.<domain>.<action>.
func Topic(domain, action string) string {
	return TopicPrefix + "." + domain + "." + action
}
