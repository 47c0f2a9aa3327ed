package elasticsearch

// indexMapping is shared by every entity index. Embedded relations are mapped
// as plain objects so dotted query-string paths (customer.city:Leeds) resolve
// without nested queries. String fields get an autocomplete subfield.
const indexMapping = `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "autocomplete_indexing": {
          "type": "custom",
          "tokenizer": "autocomplete_tokenizer",
          "filter": ["lowercase", "asciifolding"]
        },
        "autocomplete_search": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "asciifolding"]
        }
      },
      "tokenizer": {
        "autocomplete_tokenizer": {
          "type": "edge_ngram",
          "min_gram": 1,
          "max_gram": 20,
          "token_chars": ["letter", "digit"]
        }
      }
    }
  },
  "mappings": {
    "dynamic_templates": [
      {
        "ids": {
          "match_pattern": "regex",
          "match": "^(id|.*_id)$",
          "mapping": { "type": "keyword" }
        }
      },
      {
        "codes": {
          "match_pattern": "regex",
          "match": "^(postcode|country|status)$",
          "mapping": { "type": "keyword", "normalizer": "lowercase" }
        }
      },
      {
        "strings": {
          "match_mapping_type": "string",
          "mapping": {
            "type": "text",
            "fields": {
              "keyword": { "type": "keyword", "ignore_above": 256 },
              "autocomplete": { "type": "text", "analyzer": "autocomplete_indexing", "search_analyzer": "autocomplete_search" }
            }
          }
        }
      }
    ],
    "properties": {
      "id": { "type": "keyword" }
    }
  }
}`
