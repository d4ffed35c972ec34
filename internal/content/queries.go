package content

// Listing pages deliberately skip brief, content and tags to keep payloads small.
const listPostsQuery = `
query Publication($first: Int!, $after: String, $host: String!) {
  publication(host: $host) {
    posts(first: $first, after: $after) {
      edges {
        cursor
        node {
          id
          title
          subtitle
          slug
          coverImage { url }
          publishedAt
        }
      }
      pageInfo {
        hasNextPage
        endCursor
      }
    }
  }
}`

// The search corpus needs every searchable field.
const corpusPostsQuery = `
query PublicationAllPosts($first: Int!, $after: String, $host: String!) {
  publication(host: $host) {
    posts(first: $first, after: $after) {
      edges {
        cursor
        node {
          id
          title
          subtitle
          slug
          brief
          publishedAt
          coverImage { url }
          content { html }
          tags { name slug }
        }
      }
      pageInfo {
        hasNextPage
        endCursor
      }
    }
  }
}`

const postBySlugQuery = `
query GetPostBySlug($slug: String!, $host: String!) {
  publication(host: $host) {
    post(slug: $slug) {
      id
      slug
      title
      subtitle
      content { html }
      brief
      coverImage { url }
      publishedAt
      tags { name slug }
    }
  }
}`

type postNode struct {
	ID          string  `json:"id"`
	Slug        string  `json:"slug"`
	Title       string  `json:"title"`
	Subtitle    *string `json:"subtitle"`
	Brief       *string `json:"brief"`
	PublishedAt *string `json:"publishedAt"`
	Content     *struct {
		HTML string `json:"html"`
	} `json:"content"`
	CoverImage *struct {
		URL string `json:"url"`
	} `json:"coverImage"`
	Tags []tagNode `json:"tags"`
}

type tagNode struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type postEdge struct {
	Cursor string   `json:"cursor"`
	Node   postNode `json:"node"`
}

type pageInfo struct {
	HasNextPage bool    `json:"hasNextPage"`
	EndCursor   *string `json:"endCursor"`
}

type postConnection struct {
	Edges    []postEdge `json:"edges"`
	PageInfo pageInfo   `json:"pageInfo"`
}

type postsData struct {
	Publication *struct {
		Posts *postConnection `json:"posts"`
	} `json:"publication"`
}

type postData struct {
	Publication *struct {
		Post *postNode `json:"post"`
	} `json:"publication"`
}
