package rosbag2

// Storage schema of a sqlite3 storage file (schema revision 3).
var schemaStatements = []string{
	`CREATE TABLE schema(
        schema_version INTEGER PRIMARY KEY,
        ros_distro TEXT NOT NULL
    )`,
	`CREATE TABLE topics(
        id INTEGER PRIMARY KEY,
        name TEXT NOT NULL,
        type TEXT NOT NULL,
        serialization_format TEXT NOT NULL,
        offered_qos_profiles TEXT NOT NULL
    )`,
	`CREATE TABLE messages(
        id INTEGER PRIMARY KEY,
        topic_id INTEGER NOT NULL,
        timestamp INTEGER NOT NULL,
        data BLOB NOT NULL
    )`,
	`INSERT INTO schema(schema_version, ros_distro) VALUES (3, '')`,
}

const (
	createTimestampIndex = `CREATE INDEX timestamp_idx ON messages (timestamp ASC)`

	insertTopic   = `INSERT INTO topics(id, name, type, serialization_format, offered_qos_profiles) VALUES (?, ?, ?, ?, ?)`
	insertMessage = `INSERT INTO messages(topic_id, timestamp, data) VALUES (?, ?, ?)`

	selectTopics   = `SELECT id, name FROM topics`
	selectMessages = `SELECT topic_id, timestamp, data FROM messages ORDER BY id`
)

var writePragmas = []string{
	"PRAGMA journal_mode=MEMORY",
	"PRAGMA synchronous=OFF",
}

var readPragmas = []string{
	"PRAGMA query_only = ON",
}
