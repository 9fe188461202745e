// Package datalake turns raw song catalog files and user activity logs into a
// star schema: four dimension tables (songs, artist, users, time) and one fact
// table (songplays). The transformations in this package are pure functions
// over slices; reading and writing live in sub-packages.
//
// The pipeline has four stages.
//
// 1. RawSource
//
//    A RawSource enumerates the objects matching a path pattern and hands
//    them out one reader at a time. The file package reads from local disk
//    (optionally splitting large files into line-aligned fragments), the
//    aws/s3 package reads from a bucket. Sources never interpret the bytes
//    they return.
//
// 2. Reader
//
//    The json package decodes catalog files (one object per file) and
//    activity logs (one object per line) into CatalogRecord and
//    ActivityEvent values. Anything that does not decode is a
//    MalformedInputError and the run stops; a partial catalog would silently
//    drop facts later on.
//
// 3. Builders
//
//    BuildSongs, BuildArtists, BuildUsers, BuildTimes and BuildSongplays
//    project, deduplicate and join. Every stage can be run on any number of
//    shards: rows are hash-partitioned on their full tuple, so duplicates
//    always meet in the same shard and the result does not depend on shard
//    boundaries. Songplay ids come from per-shard ranges (see ShardRange) so
//    no shard needs to coordinate with another.
//
// 4. Writer
//
//    A Writer persists a Table. The duckdb package writes hive-partitioned
//    Parquet directories, and can hand the result to a Publisher such as the
//    S3 one for remote output.
package datalake
